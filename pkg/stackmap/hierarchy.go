package stackmap

import "strings"

const objectClass = "java/lang/Object"

// ClassInfo is what the analyzer needs to know about a class.
type ClassInfo struct {
	Name      string
	Super     string
	Interface bool
}

// Hierarchy resolves classes by internal name.
type Hierarchy interface {
	Resolve(name string) (ClassInfo, bool)
}

type typeSystem struct {
	h Hierarchy
}

// superChain returns name followed by its superclasses. The chain is
// complete when it ends at java/lang/Object.
func (ts typeSystem) superChain(name string) (chain []string, complete bool) {
	seen := map[string]bool{}
	for name != "" && !seen[name] {
		seen[name] = true
		chain = append(chain, name)
		if name == objectClass {
			return chain, true
		}
		if ts.h == nil {
			return chain, false
		}
		info, ok := ts.h.Resolve(name)
		if !ok {
			return chain, false
		}
		name = info.Super
	}
	return chain, false
}

func (ts typeSystem) isInterface(name string) (iface, known bool) {
	if ts.h == nil {
		return false, false
	}
	info, ok := ts.h.Resolve(name)
	return info.Interface, ok
}

// classAssignable reports whether from can be assigned to to, and whether
// the answer was determined from known classes.
func (ts typeSystem) classAssignable(from, to string) (ok, known bool) {
	if from == to || to == objectClass {
		return true, true
	}
	fromArr, toArr := strings.HasPrefix(from, "["), strings.HasPrefix(to, "[")
	switch {
	case toArr && !fromArr:
		return false, true
	case fromArr && !toArr:
		return to == "java/lang/Cloneable" || to == "java/io/Serializable", true
	case fromArr && toArr:
		fe, te := from[1:], to[1:]
		if isReferenceDescriptor(fe) && isReferenceDescriptor(te) {
			return ts.classAssignable(elementClass(fe), elementClass(te))
		}
		return fe == te, true
	}
	if iface, known := ts.isInterface(to); known && iface {
		return true, true
	}
	chain, complete := ts.superChain(from)
	for _, c := range chain {
		if c == to {
			return true, true
		}
	}
	return false, complete
}

// Assignable reports whether a value of type from may be stored where to is declared.
// Unknown classes are trusted.
func (ts typeSystem) assignable(from, to Type) bool {
	if from == to || to.Kind == Top {
		return true
	}
	switch to.Kind {
	case Object:
		switch from.Kind {
		case Null:
			return true
		case Object:
			ok, known := ts.classAssignable(from.Class, to.Class)
			return ok || !known
		}
	}
	return false
}

// merge returns the most specific type both a and b can be assigned to.
func (ts typeSystem) merge(a, b Type) Type {
	if a == b {
		return a
	}
	switch {
	case a.Kind == Null && b.Kind == Object:
		return b
	case a.Kind == Object && b.Kind == Null:
		return a
	case a.Kind == Object && b.Kind == Object:
		return ObjectType(ts.commonSuper(a.Class, b.Class))
	}
	return TopType
}

func isReferenceDescriptor(d string) bool {
	return strings.HasPrefix(d, "L") || strings.HasPrefix(d, "[")
}

func elementClass(d string) string {
	if strings.HasPrefix(d, "L") {
		return d[1 : len(d)-1]
	}
	return d
}

func (ts typeSystem) commonSuper(a, b string) string {
	aArr, bArr := strings.HasPrefix(a, "["), strings.HasPrefix(b, "[")
	if aArr || bArr {
		if aArr && bArr && isReferenceDescriptor(a[1:]) && isReferenceDescriptor(b[1:]) {
			return "[" + descriptorOf(ts.commonSuper(elementClass(a[1:]), elementClass(b[1:])))
		}
		return objectClass
	}
	if ok, known := ts.classAssignable(a, b); ok && known {
		return b
	}
	if ok, known := ts.classAssignable(b, a); ok && known {
		return a
	}
	if iface, _ := ts.isInterface(a); iface {
		return objectClass
	}
	if iface, _ := ts.isInterface(b); iface {
		return objectClass
	}
	bChain, _ := ts.superChain(b)
	inB := make(map[string]bool, len(bChain))
	for _, c := range bChain {
		inB[c] = true
	}
	aChain, _ := ts.superChain(a)
	for _, c := range aChain {
		if inB[c] {
			return c
		}
	}
	return objectClass
}
