package classfile

import (
	"strings"

	"github.com/pkg/errors"
)

// parseFieldType returns the length of the field descriptor starting at desc[i:].
func parseFieldType(desc string, i int) (int, error) {
	start := i
	for i < len(desc) && desc[i] == '[' {
		i++
	}
	if i-start > 255 {
		return 0, errors.Errorf("classfile: descriptor %q has too many array dimensions", desc)
	}
	if i >= len(desc) {
		return 0, errors.Errorf("classfile: truncated descriptor %q", desc)
	}
	switch desc[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1 - start, nil
	case 'L':
		end := strings.IndexByte(desc[i:], ';')
		if end <= 1 {
			return 0, errors.Errorf("classfile: malformed class type in descriptor %q", desc)
		}
		return i + end + 1 - start, nil
	}
	return 0, errors.Errorf("classfile: invalid descriptor character %q in %q", desc[i], desc)
}

// ParseMethodDescriptor splits a method descriptor into its argument types and return type.
func ParseMethodDescriptor(desc string) (args []string, ret string, err error) {
	if len(desc) == 0 || desc[0] != '(' {
		return nil, "", errors.Errorf("classfile: method descriptor %q does not start with '('", desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := parseFieldType(desc, i)
		if err != nil {
			return nil, "", err
		}
		args = append(args, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return nil, "", errors.Errorf("classfile: method descriptor %q has no ')'", desc)
	}
	i++
	if i < len(desc) && desc[i] == 'V' && i+1 == len(desc) {
		return args, "V", nil
	}
	n, err := parseFieldType(desc, i)
	if err != nil {
		return nil, "", err
	}
	if i+n != len(desc) {
		return nil, "", errors.Errorf("classfile: trailing characters in method descriptor %q", desc)
	}
	return args, desc[i:], nil
}

// ValidFieldDescriptor reports whether desc is exactly one field type.
func ValidFieldDescriptor(desc string) bool {
	n, err := parseFieldType(desc, 0)
	return err == nil && n == len(desc)
}

// TypeSlots returns the number of local variable or operand stack slots a value of type desc occupies.
func TypeSlots(desc string) int {
	switch desc {
	case "J", "D":
		return 2
	case "V":
		return 0
	}
	return 1
}

// ArgumentSlots returns the number of local variable slots the arguments of desc occupy,
// excluding the receiver.
func ArgumentSlots(desc string) (int, error) {
	args, _, err := ParseMethodDescriptor(desc)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range args {
		n += TypeSlots(a)
	}
	return n, nil
}

// ReplaceReturnType returns desc with its return type replaced by ret.
func ReplaceReturnType(desc, ret string) (string, error) {
	if _, _, err := ParseMethodDescriptor(desc); err != nil {
		return "", err
	}
	return desc[:strings.LastIndexByte(desc, ')')+1] + ret, nil
}
