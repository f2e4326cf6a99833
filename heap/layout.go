package heap

import (
	"fmt"

	"github.com/chazu/quark/value"
)

// InstanceType is the closed set of heap object shapes. Species objects
// record the instance type of their instances; the collector switches on it
// to size objects and find their pointer fields.
type InstanceType uint8

const (
	SpeciesType InstanceType = iota + 1
	TupleType
	StringType
	BlobType
	LambdaType
	MethodType
	SelectorType
	InstanceObjectType
	SingletonType
)

var instanceTypeNames = map[InstanceType]string{
	SpeciesType:        "Species",
	TupleType:          "Tuple",
	StringType:         "String",
	BlobType:           "Blob",
	LambdaType:         "Lambda",
	MethodType:         "Method",
	SelectorType:       "Selector",
	InstanceObjectType: "Instance",
	SingletonType:      "Singleton",
}

func (t InstanceType) String() string {
	if name, ok := instanceTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("InstanceType(%d)", uint8(t))
}

// Field indices. Word 0 of every object is the header.
const (
	HeaderField = 0

	SpeciesInstanceTypeField = 1
	SpeciesFieldCountField   = 2
	SpeciesNameField         = 3
	SpeciesMethodsField      = 4
	SpeciesParentField       = 5
	speciesWords             = 6

	TupleLengthField = 1
	tupleHeaderWords = 2

	// Strings and blobs share a layout: byte length then raw words.
	BytesLengthField = 1
	bytesHeaderWords = 2

	LambdaArgcField     = 1
	LambdaCodeField     = 2
	LambdaLiteralsField = 3
	LambdaNameField     = 4
	lambdaWords         = 5

	MethodSelectorField  = 1
	MethodSignatureField = 2
	MethodBodyField      = 3
	methodWords          = 4

	SelectorNameField = 1
	SelectorArgcField = 2
	selectorWords     = 3

	singletonWords = 1
)

// layout returns the object size in words and how many leading words are
// tagged values. The remaining words (string and blob payloads) are raw and
// never scanned.
func (m *Memory) layout(addr value.Address) (words, pointers uint64) {
	header := value.Value(*m.slot(addr, HeaderField))
	if !header.IsHeapObject() {
		Fatalf(FatalCorruptHeap, "object at %#x has header %v", uint64(addr), header)
	}
	species := header.Address()
	itype := InstanceType(m.smallIntAt(species, SpeciesInstanceTypeField))

	switch itype {
	case SpeciesType:
		return speciesWords, speciesWords
	case TupleType:
		n := tupleHeaderWords + m.smallIntAt(addr, TupleLengthField)
		return n, n
	case StringType, BlobType:
		n := value.Align(m.smallIntAt(addr, BytesLengthField)) / value.PointerSize
		return bytesHeaderWords + n, bytesHeaderWords
	case LambdaType:
		return lambdaWords, lambdaWords
	case MethodType:
		return methodWords, methodWords
	case SelectorType:
		return selectorWords, selectorWords
	case InstanceObjectType:
		n := 1 + m.smallIntAt(species, SpeciesFieldCountField)
		return n, n
	case SingletonType:
		return singletonWords, singletonWords
	}
	Fatalf(FatalCorruptHeap, "species at %#x has instance type %d", uint64(species), itype)
	return 0, 0
}

// bytesWords is the number of payload words needed for n raw bytes.
func bytesWords(n int) uint64 {
	return value.Align(uint64(n)) / value.PointerSize
}

func (m *Memory) smallIntAt(addr value.Address, field uint64) uint64 {
	v := value.Value(*m.slot(addr, field))
	if !v.IsSmallInteger() || v.Int() < 0 {
		Fatalf(FatalCorruptHeap, "word %d of %#x is %v, want a non-negative small integer", field, uint64(addr), v)
	}
	return uint64(v.Int())
}
