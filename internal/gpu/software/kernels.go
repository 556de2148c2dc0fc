package software

import (
	"math"

	"github.com/fxnlabs/gpubench/internal/kernels"
)

// kernelImpls are host implementations of the catalog programs. Each function is one
// workgroup; the grid layout matches the dispatch the compiled program expects.
var kernelImpls = map[kernels.Op]kernelFunc{
	kernels.OpMatmul:         matmulTile,
	kernels.OpGEMV:           gemvRow,
	kernels.OpLayerNorm:      layerNormRow,
	kernels.OpSoftmax:        softmaxRow,
	kernels.OpGELU:           geluChunk,
	kernels.OpAttentionScore: qkScoreTile,
}

// matmulTile computes a TM x TN tile of C = A * B, walking K in steps of TK.
// Workgroup x indexes column tiles, y indexes row tiles.
func matmulTile(l *launch, x, y, _ uint32) {
	a, b, c := l.floats[0], l.floats[1], l.floats[2]
	dims := l.uints[3]
	M, N, K := int(dims[0]), int(dims[1]), int(dims[2])
	tm, tn, tk := l.constant("TM"), l.constant("TN"), l.constant("TK")

	row0, col0 := int(y)*tm, int(x)*tn
	rows, cols := min(tm, M-row0), min(tn, N-col0)
	if rows <= 0 || cols <= 0 {
		return
	}
	acc := make([]float32, tm*tn)
	for k0 := 0; k0 < K; k0 += tk {
		kEnd := min(k0+tk, K)
		for i := 0; i < rows; i++ {
			arow := a[(row0+i)*K:]
			accRow := acc[i*tn : i*tn+cols]
			for k := k0; k < kEnd; k++ {
				av := arow[k]
				brow := b[k*N+col0 : k*N+col0+cols]
				for j, bv := range brow {
					accRow[j] += av * bv
				}
			}
		}
	}
	for i := 0; i < rows; i++ {
		copy(c[(row0+i)*N+col0:(row0+i)*N+col0+cols], acc[i*tn:i*tn+cols])
	}
}

// gemvRow computes one element of y = A * x.
func gemvRow(l *launch, x, _, _ uint32) {
	a, v, out := l.floats[0], l.floats[1], l.floats[2]
	M, K := int(l.uints[3][0]), int(l.uints[3][1])
	row := int(x)
	if row >= M {
		return
	}
	var sum float32
	for k, av := range a[row*K : row*K+K] {
		sum += av * v[k]
	}
	out[row] = sum
}

// layerNormRow normalizes one row. With the affine flag set the row is scaled by a
// unit gain and shifted by a zero bias, the initial values of the learned parameters.
func layerNormRow(l *launch, x, _, _ uint32) {
	in, out := l.floats[0], l.floats[1]
	dims := l.uints[2]
	B, N, affine := int(dims[0]), int(dims[1]), dims[2] != 0
	eps := float64(l.floats[3][0])
	row := int(x)
	if row >= B || N == 0 {
		return
	}
	src, dst := in[row*N:row*N+N], out[row*N:row*N+N]

	var mean float64
	for _, v := range src {
		mean += float64(v)
	}
	mean /= float64(N)
	var variance float64
	for _, v := range src {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(N)
	inv := 1 / math.Sqrt(variance+eps)

	gain, bias := 1.0, 0.0
	for i, v := range src {
		n := (float64(v) - mean) * inv
		if affine {
			n = n*gain + bias
		}
		dst[i] = float32(n)
	}
}

// softmaxRow computes a numerically stable softmax over one row.
func softmaxRow(l *launch, x, _, _ uint32) {
	in, out := l.floats[0], l.floats[1]
	rows, cols := int(l.uints[2][0]), int(l.uints[2][1])
	row := int(x)
	if row >= rows || cols == 0 {
		return
	}
	src, dst := in[row*cols:row*cols+cols], out[row*cols:row*cols+cols]
	peak := src[0]
	for _, v := range src[1:] {
		peak = max(peak, v)
	}
	var sum float64
	for i, v := range src {
		e := math.Exp(float64(v - peak))
		dst[i] = float32(e)
		sum += e
	}
	for i := range dst {
		dst[i] = float32(float64(dst[i]) / sum)
	}
}

// geluChunk applies the tanh approximation of GELU to one workgroup-sized chunk.
func geluChunk(l *launch, x, _, _ uint32) {
	in, out := l.floats[0], l.floats[1]
	elements := int(l.uints[2][1])
	size := int(l.program.WorkgroupSize[0])
	start := int(x) * size
	end := min(start+size, elements)
	for i := start; i < end; i++ {
		out[i] = GELU(in[i])
	}
}

// GELU is the tanh approximation used by the gelu programs.
func GELU(v float32) float32 {
	x := float64(v)
	const c = 0.7978845608028654 // sqrt(2/pi)
	return float32(0.5 * x * (1 + math.Tanh(c*(x+0.044715*x*x*x))))
}

// qkScoreTile computes a 16x16 tile of S = Q * K^T / sqrt(dim).
func qkScoreTile(l *launch, x, y, _ uint32) {
	q, k, s := l.floats[0], l.floats[1], l.floats[2]
	seq, dim := int(l.uints[3][0]), int(l.uints[3][1])
	tx, ty := int(l.program.WorkgroupSize[0]), int(l.program.WorkgroupSize[1])
	scale := float32(1 / math.Sqrt(float64(dim)))
	for i := int(y) * ty; i < min(int(y)*ty+ty, seq); i++ {
		qrow := q[i*dim : i*dim+dim]
		for j := int(x) * tx; j < min(int(x)*tx+tx, seq); j++ {
			krow := k[j*dim : j*dim+dim]
			var dot float32
			for d, qv := range qrow {
				dot += qv * krow[d]
			}
			s[i*seq+j] = dot * scale
		}
	}
}
