package batch

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Tensors converts the batch into gomlx tensors: data shaped
// [Size, MaxLen, Features] and mask shaped [Size, MaxLen]. The nested slices
// handed to the tensor constructor are views over the flat buffers, so
// nothing is copied before the tensor construction itself.
func (b *Batch) Tensors() (data, mask *tensors.Tensor, err error) {
	if b.Size <= 0 || b.MaxLen <= 0 || b.Features <= 0 {
		return nil, nil, fmt.Errorf("batch has empty shape [%d, %d, %d]", b.Size, b.MaxLen, b.Features)
	}
	if len(b.Data) != b.Size*b.MaxLen*b.Features || len(b.Mask) != b.Size*b.MaxLen {
		return nil, nil, fmt.Errorf("batch buffers do not match shape [%d, %d, %d]",
			b.Size, b.MaxLen, b.Features)
	}

	rows := make([][][]float32, b.Size)
	for i := 0; i < b.Size; i++ {
		rows[i] = make([][]float32, b.MaxLen)
		for t := 0; t < b.MaxLen; t++ {
			off := (i*b.MaxLen + t) * b.Features
			rows[i][t] = b.Data[off : off+b.Features]
		}
	}
	data = tensors.FromAnyValue(rows)

	maskRows := make([][]float32, b.Size)
	for i := 0; i < b.Size; i++ {
		maskRows[i] = b.Mask[i*b.MaxLen : (i+1)*b.MaxLen]
	}
	mask = tensors.FromAnyValue(maskRows)
	return data, mask, nil
}
