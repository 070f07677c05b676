package track

// RampSampler is a deterministic sampler for simulation and tests.
//
// Each column c starts at Base+Step*c on the first sample and every
// subsequent sample adds Step to all columns. The same construction
// always produces the same sequence, which keeps CLI simulation runs
// and golden tests reproducible.
type RampSampler struct {
	Base  float64
	Step  float64
	width int
	calls int
}

// NewRampSampler creates a ramp sampler producing width columns.
func NewRampSampler(width int, base, step float64) *RampSampler {
	return &RampSampler{Base: base, Step: step, width: width}
}

// Sample produces the next deterministic value vector.
func (r *RampSampler) Sample() []any {
	values := make([]any, r.width)
	for c := 0; c < r.width; c++ {
		values[c] = r.Base + r.Step*float64(r.calls+c)
	}
	r.calls++
	return values
}

// Reset rewinds the sampler to its initial state.
func (r *RampSampler) Reset() {
	r.calls = 0
}
