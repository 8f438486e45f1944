package reference

import "fmt"

// Float64ToFloat32 narrows every element of input.
func Float64ToFloat32(input []float64) []float32 {
	output := make([]float32, len(input))
	for i, v := range input {
		output[i] = float32(v)
	}
	return output
}

// Float32ToFloat64 widens every element of input.
func Float32ToFloat64(input []float32) []float64 {
	output := make([]float64, len(input))
	for i, v := range input {
		output[i] = float64(v)
	}
	return output
}

// Flatten packs a rectangular matrix given as rows into a row-major float32
// slice and returns its shape. Ragged or empty input is rejected.
func Flatten(matrix [][]float64) (data []float32, rows, cols int, err error) {
	rows = len(matrix)
	if rows == 0 || len(matrix[0]) == 0 {
		return nil, 0, 0, fmt.Errorf("matrix is empty")
	}
	cols = len(matrix[0])
	data = make([]float32, 0, rows*cols)
	for i, row := range matrix {
		if len(row) != cols {
			return nil, 0, 0, fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
		for _, v := range row {
			data = append(data, float32(v))
		}
	}
	return data, rows, cols, nil
}

// Unflatten splits a row-major slice into rows of cols elements. It returns
// nil when the slice does not hold exactly rows×cols values.
func Unflatten(data []float32, rows, cols int) [][]float64 {
	if rows <= 0 || cols <= 0 || len(data) != rows*cols {
		return nil
	}
	matrix := make([][]float64, rows)
	for i := range matrix {
		matrix[i] = Float32ToFloat64(data[i*cols : (i+1)*cols])
	}
	return matrix
}
