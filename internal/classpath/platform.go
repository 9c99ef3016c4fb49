package classpath

import "github.com/blacktop/retrobuffer/pkg/stackmap"

func class(name, super string) stackmap.ClassInfo {
	return stackmap.ClassInfo{Name: name, Super: super}
}

func iface(name string) stackmap.ClassInfo {
	return stackmap.ClassInfo{Name: name, Super: "java/lang/Object", Interface: true}
}

// platform describes the runtime classes most frames mention, so a run
// without a JDK on its classpath can still merge them precisely.
var platform = func() map[string]stackmap.ClassInfo {
	m := map[string]stackmap.ClassInfo{}
	for _, info := range []stackmap.ClassInfo{
		{Name: "java/lang/Object"},
		class("java/lang/String", "java/lang/Object"),
		class("java/lang/Class", "java/lang/Object"),
		class("java/lang/Enum", "java/lang/Object"),
		class("java/lang/Thread", "java/lang/Object"),
		class("java/lang/Number", "java/lang/Object"),
		class("java/lang/Boolean", "java/lang/Object"),
		class("java/lang/Character", "java/lang/Object"),
		class("java/lang/Byte", "java/lang/Number"),
		class("java/lang/Short", "java/lang/Number"),
		class("java/lang/Integer", "java/lang/Number"),
		class("java/lang/Long", "java/lang/Number"),
		class("java/lang/Float", "java/lang/Number"),
		class("java/lang/Double", "java/lang/Number"),
		class("java/lang/AbstractStringBuilder", "java/lang/Object"),
		class("java/lang/StringBuilder", "java/lang/AbstractStringBuilder"),
		class("java/lang/StringBuffer", "java/lang/AbstractStringBuilder"),

		class("java/lang/Throwable", "java/lang/Object"),
		class("java/lang/Exception", "java/lang/Throwable"),
		class("java/lang/Error", "java/lang/Throwable"),
		class("java/lang/RuntimeException", "java/lang/Exception"),
		class("java/lang/IllegalStateException", "java/lang/RuntimeException"),
		class("java/lang/IllegalArgumentException", "java/lang/RuntimeException"),
		class("java/lang/NullPointerException", "java/lang/RuntimeException"),
		class("java/lang/IndexOutOfBoundsException", "java/lang/RuntimeException"),
		class("java/lang/UnsupportedOperationException", "java/lang/RuntimeException"),
		class("java/lang/ClassCastException", "java/lang/RuntimeException"),
		class("java/io/IOException", "java/lang/Exception"),
		class("java/io/UncheckedIOException", "java/lang/RuntimeException"),

		class("java/nio/Buffer", "java/lang/Object"),
		class("java/nio/ByteBuffer", "java/nio/Buffer"),
		class("java/nio/CharBuffer", "java/nio/Buffer"),
		class("java/nio/DoubleBuffer", "java/nio/Buffer"),
		class("java/nio/FloatBuffer", "java/nio/Buffer"),
		class("java/nio/IntBuffer", "java/nio/Buffer"),
		class("java/nio/LongBuffer", "java/nio/Buffer"),
		class("java/nio/ShortBuffer", "java/nio/Buffer"),
		class("java/nio/MappedByteBuffer", "java/nio/ByteBuffer"),
		class("java/nio/BufferOverflowException", "java/lang/RuntimeException"),
		class("java/nio/BufferUnderflowException", "java/lang/RuntimeException"),
		class("java/nio/InvalidMarkException", "java/lang/IllegalStateException"),

		iface("java/lang/Cloneable"),
		iface("java/io/Serializable"),
		iface("java/lang/Comparable"),
		iface("java/lang/CharSequence"),
		iface("java/lang/Runnable"),
		iface("java/lang/Iterable"),
		iface("java/lang/AutoCloseable"),
		iface("java/lang/Appendable"),
		iface("java/lang/Readable"),
		iface("java/io/Closeable"),
		iface("java/util/Collection"),
		iface("java/util/List"),
		iface("java/util/Set"),
		iface("java/util/Map"),
		iface("java/util/Iterator"),
	} {
		m[info.Name] = info
	}
	return m
}()
