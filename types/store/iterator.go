package store

type Iterator interface {
	Key() []byte
	First() bool
	Next() bool
	Prev() bool
	Valid() bool
	Value() []byte
	Close() error
	SeekLT([]byte) bool
	SeekGE([]byte) bool
	Last() bool
}

type TypedIterator[T any] interface {
	First() bool
	Next() bool
	Valid() bool
	Value() (T, error)
	Close() error
}
