package main

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/notargets/gpuprims/device"
	"github.com/notargets/gpuprims/primitives"
)

// vectors is the input file layout:
//
//	a: [0, 1, 2, 3]
//	b: [11, 12, 13, 14]
type vectors struct {
	A []int32 `yaml:"a"`
	B []int32 `yaml:"b"`
}

// defaultInput is ten ones for the unary algorithms and [0..9], [11..20]
// for the element-wise ones
func defaultInput(algorithm string) vectors {
	if !primitives.Binary(algorithm) {
		a := make([]int32, 10)
		for i := range a {
			a[i] = 1
		}
		return vectors{A: a}
	}
	v := vectors{A: make([]int32, 10), B: make([]int32, 10)}
	for i := range v.A {
		v.A[i] = int32(i)
		v.B[i] = int32(i + 11)
	}
	return v
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// loadInput returns the operands of one run. A missing b repeats a.
func loadInput(path, algorithm string, stdin io.Reader) (a, b []int32, err error) {
	v := defaultInput(algorithm)
	if path != "" {
		data, err := readInput(path, stdin)
		if err != nil {
			return nil, nil, device.NewError(device.KindConfiguration, "input", path, err)
		}
		v = vectors{}
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, nil, device.NewError(device.KindConfiguration, "input", path, err)
		}
	}
	if v.B == nil {
		v.B = v.A
	}
	if primitives.Binary(algorithm) && len(v.A) != len(v.B) {
		return nil, nil, device.Errorf(device.KindConfiguration, "input",
			"%s needs operands of equal length, got %d and %d", algorithm, len(v.A), len(v.B))
	}
	return v.A, v.B, nil
}
