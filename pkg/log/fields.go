package log

import "time"

// Field is a single structured key/value pair.
type Field struct {
	Key   string
	Value interface{}
}

func Str(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Dur records a duration in milliseconds under key.
func Dur(key string, d time.Duration) Field {
	return Field{Key: key, Value: float64(d.Microseconds()) / 1000}
}

// Err records err under the "error" key.
func Err(err error) Field { return Field{Key: "error", Value: err} }

// Component tags the logger with a component name.
func Component(name string) Field { return Field{Key: ComponentKey, Value: name} }
