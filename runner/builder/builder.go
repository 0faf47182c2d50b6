package builder

import (
	"fmt"
	"sort"
	"strings"
)

// DataType represents the element type of device data
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
	INT32
	INT64
	UINT32
)

// Size returns the size in bytes of one element
func (dt DataType) Size() int64 {
	switch dt {
	case Float32, INT32, UINT32:
		return 4
	case Float64, INT64:
		return 8
	default:
		return 0
	}
}

// CType returns the C/OKL spelling of the type
func (dt DataType) CType() string {
	switch dt {
	case Float32:
		return "float"
	case Float64:
		return "double"
	case INT32:
		return "int"
	case INT64:
		return "long"
	case UINT32:
		return "unsigned int"
	default:
		return "void"
	}
}

// IsInteger reports whether the type is an integer type
func (dt DataType) IsInteger() bool {
	return dt == INT32 || dt == INT64 || dt == UINT32
}

func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case INT32:
		return "int32"
	case INT64:
		return "int64"
	case UINT32:
		return "uint32"
	default:
		return fmt.Sprintf("DataType(%d)", int(dt))
	}
}

// DataTypeOf returns the DataType of a scalar value or of a slice's elements
func DataTypeOf(v interface{}) (DataType, bool) {
	switch v.(type) {
	case float32, []float32:
		return Float32, true
	case float64, []float64:
		return Float64, true
	case int32, []int32:
		return INT32, true
	case int64, []int64:
		return INT64, true
	case uint32, []uint32:
		return UINT32, true
	default:
		return 0, false
	}
}

// Config holds configuration for creating a Builder
type Config struct {
	WorkGroupSize int
	MaxBins       int
	IntType       DataType
	FloatType     DataType
}

// Builder generates the source preamble shared by every kernel of a program
type Builder struct {
	WorkGroupSize int
	MaxBins       int

	// Type configuration
	FloatType DataType
	IntType   DataType

	// Extra compile-time constants
	Defines map[string]int64

	// Generated code
	KernelPreamble string
}

// NewBuilder creates a new Builder instance
func NewBuilder(cfg Config) *Builder {
	if cfg.WorkGroupSize <= 0 {
		panic(fmt.Sprintf("work-group size must be positive, got %d", cfg.WorkGroupSize))
	}
	floatType := cfg.FloatType
	if floatType == 0 {
		floatType = Float32
	}
	intType := cfg.IntType
	if intType == 0 {
		intType = INT32
	}
	maxBins := cfg.MaxBins
	if maxBins <= 0 {
		maxBins = 256
	}
	return &Builder{
		WorkGroupSize: cfg.WorkGroupSize,
		MaxBins:       maxBins,
		FloatType:     floatType,
		IntType:       intType,
		Defines:       make(map[string]int64),
	}
}

// AddDefine registers an integer compile-time constant
func (kb *Builder) AddDefine(name string, value int64) {
	kb.Defines[name] = value
}

// GeneratePreamble generates the text prepended to kernel source before compilation
func (kb *Builder) GeneratePreamble() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("typedef %s real_t;\n", kb.FloatType.CType()))
	sb.WriteString(fmt.Sprintf("typedef %s int_t;\n", kb.IntType.CType()))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("#define WORK_GROUP_SIZE %d\n", kb.WorkGroupSize))
	sb.WriteString(fmt.Sprintf("#define MAX_BINS %d\n", kb.MaxBins))

	names := make([]string, 0, len(kb.Defines))
	for name := range kb.Defines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("#define %s %d\n", name, kb.Defines[name]))
	}
	sb.WriteString("\n")

	kb.KernelPreamble = sb.String()
	return kb.KernelPreamble
}
