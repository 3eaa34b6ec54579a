package qtbirds

import (
	"fmt"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"
)

//ReadLine is like the Python readline() and readlines()
func ReadLine(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	return strings.Split(string(b), "\n"), nil
}

func matPrint(X mat.Matrix) {
	fa := mat.Formatted(X, mat.Prefix(""), mat.Squeeze())
	fmt.Printf("%v\n", fa)
}

//SetIdentityMatrix will return an identity matrix with the given dimension
func SetIdentityMatrix(dim int) *mat.Dense {
	matrix := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		matrix.Set(i, i, 1.0)
	}
	return matrix
}

//OneHot will build a standard basis message vector with a single unit
//entry at state
func OneHot(dim, state int) *mat.VecDense {
	v := mat.NewVecDense(dim, nil)
	v.SetVec(state, 1.)
	return v
}

//vecData returns the components of a message as a plain slice
func vecData(v *mat.VecDense) []float64 {
	raw := v.RawVector()
	if raw.Inc == 1 {
		return raw.Data
	}
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
