package q_network

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Params is a named set of parameter tensors, e.g. "dense1/kernel" -> (in, hidden).
// The same layout serves as live parameters, target parameters and gradients.
type Params map[string]*mat.Dense

// Names returns the parameter names in a stable order.
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone deep-copies the parameter set.
func (p Params) Clone() Params {
	clone := make(Params, len(p))
	for name, tensor := range p {
		clone[name] = mat.DenseCopyOf(tensor)
	}
	return clone
}

// Equal reports whether both sets hold the same names with identical values.
func (p Params) Equal(other Params) bool {
	if len(p) != len(other) {
		return false
	}
	for name, tensor := range p {
		if o, ok := other[name]; !ok || !mat.Equal(tensor, o) {
			return false
		}
	}
	return true
}

// SoftUpdate moves target toward live in place: target <- tau*live + (1-tau)*target.
// tau=1 copies live exactly, tau=0 leaves target untouched. Parameters missing from
// target are ignored.
func SoftUpdate(target, live Params, tau float64) {
	if tau == 0 {
		return
	}
	for name, dst := range target {
		src, ok := live[name]
		if !ok {
			continue
		}
		if tau == 1 {
			dst.Copy(src)
			continue
		}
		dst.Scale(1-tau, dst)
		dst.Apply(func(i, j int, v float64) float64 {
			return v + tau*src.At(i, j)
		}, dst)
	}
}

// SaveParams writes the parameter set to path with gob, creating parent directories.
func SaveParams(path string, params Params) (err error) {
	encoded := make(map[string][]byte, len(params))
	for name, tensor := range params {
		if encoded[name], err = tensor.MarshalBinary(); err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
	}

	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	var f *os.File
	if f, err = os.Create(path); err != nil {
		return
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	err = gob.NewEncoder(f).Encode(encoded)
	return
}

// LoadParams reads a parameter set written by SaveParams.
func LoadParams(path string) (Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	encoded := map[string][]byte{}
	if err = gob.NewDecoder(f).Decode(&encoded); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	params := make(Params, len(encoded))
	for name, data := range encoded {
		tensor := &mat.Dense{}
		if err = tensor.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", name, err)
		}
		params[name] = tensor
	}
	return params, nil
}
