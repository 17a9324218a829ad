package db

var (
	NamespaceRemoteAccount   = []byte("racct")
	NamespaceRemoteStorage   = []byte("rslot")
	NamespaceRemoteCode      = []byte("rcode")
	NamespaceRemoteBlockHash = []byte("rhash")
	Separator                = []byte("|")
)

func PrependNamespace(namespace []byte, key []byte) []byte {
	if namespace != nil {
		return append(append(append([]byte{}, namespace...), Separator...), key...)
	}
	return key
}

func ConvNilToBytes(byteArray []byte) []byte {
	if byteArray == nil {
		return []byte{}
	}
	return byteArray
}
