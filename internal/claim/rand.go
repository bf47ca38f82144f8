package claim

import "math/rand"

// randFloat returns a uniform [0,1) sample for the probability gate.
func randFloat() float64 { return rand.Float64() }
