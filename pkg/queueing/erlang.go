// Package queueing computes worker counts for queue-backed fleets using
// Erlang-C (M/M/c) formulas with an optional M/G/c correction for general
// service-time distributions.
//
// The M/G/c correction is a heavy-traffic approximation in the
// Pollaczek-Khinchin style: the M/M/c waiting time is scaled by
// (sigma^2 + 1/mu^2) / (2/mu^2). It is accurate near saturation and
// increasingly optimistic at low utilization. Treat corrected results as
// estimates, not guarantees.
package queueing

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidServiceRate is returned when the mean service time is zero or
// negative, making the service rate undefined.
var ErrInvalidServiceRate = errors.New("queueing: service rate must be positive")

// Limits bounds the server search.
type Limits struct {
	// Min is the floor returned for idle queues (lambda == 0) and the lower
	// bound of any search result. Values below 1 are treated as 1.
	Min int

	// Max caps the search. When the target wait cannot be met within Max
	// servers, Max is returned and the caller should treat the SLO as
	// unachievable at this load.
	Max int
}

func (l Limits) normalize() Limits {
	if l.Min < 1 {
		l.Min = 1
	}
	if l.Max < l.Min {
		l.Max = l.Min
	}
	return l
}

// RequiredServers returns the smallest worker count c such that the system is
// stable (rho < 1) and the expected queueing delay Wq meets targetWait.
//
// lambda is the arrival rate in jobs/sec, serviceMean the mean service time,
// and serviceVar the service-time variance in sec^2. A zero serviceVar (or one
// equal to serviceMean^2, the exponential case) leaves the pure M/M/c result;
// anything else triggers the M/G/c correction.
//
// The search starts at ceil(lambda/mu)+1, the smallest count with guaranteed
// stability plus one server of headroom, so the result is monotone in lambda.
func RequiredServers(lambda float64, serviceMean time.Duration, serviceVar float64, targetWait time.Duration, limits Limits) (int, error) {
	limits = limits.normalize()

	if serviceMean <= 0 {
		return 0, ErrInvalidServiceRate
	}
	if lambda <= 0 {
		return limits.Min, nil
	}

	mu := 1.0 / serviceMean.Seconds()
	start := int(math.Ceil(lambda/mu)) + 1
	if start < limits.Min {
		start = limits.Min
	}

	target := targetWait.Seconds()
	for c := start; c <= limits.Max; c++ {
		rho := lambda / (float64(c) * mu)
		if rho >= 1 {
			continue
		}
		wq := waitSeconds(lambda, mu, c)
		if serviceVar > 0 {
			wq *= correctionFactor(mu, serviceVar)
		}
		if wq <= target {
			return c, nil
		}
	}

	return limits.Max, nil
}

// Wait returns the expected M/M/c queueing delay Wq for c servers, or a
// negative duration when the system is unstable (lambda >= c*mu).
func Wait(lambda, mu float64, c int) time.Duration {
	if mu <= 0 || c <= 0 {
		return -1
	}
	if lambda <= 0 {
		return 0
	}
	if lambda >= float64(c)*mu {
		return -1
	}
	return time.Duration(waitSeconds(lambda, mu, c) * float64(time.Second))
}

// Utilization returns rho = lambda/(c*mu), clamped to [0, 1].
func Utilization(lambda, mu float64, c int) float64 {
	if mu <= 0 || c <= 0 {
		return 1
	}
	rho := lambda / (float64(c) * mu)
	if rho < 0 {
		return 0
	}
	if rho > 1 {
		return 1
	}
	return rho
}

// waitSeconds computes Wq = Lq/lambda for a stable M/M/c system.
func waitSeconds(lambda, mu float64, c int) float64 {
	rho := lambda / (float64(c) * mu)
	pw := erlangC(lambda/mu, c, rho)

	// Lq = Pwait * rho / (1 - rho); Wq = Lq / lambda = Pwait / (c*mu - lambda)
	return pw / (float64(c)*mu - lambda)
}

// erlangC computes the probability an arriving job waits, via the Erlang-B
// recursion. The recursive form avoids the factorial overflow the closed-form
// expression hits past ~170 servers.
func erlangC(a float64, c int, rho float64) float64 {
	b := 1.0
	for k := 1; k <= c; k++ {
		b = a * b / (float64(k) + a*b)
	}
	return b / (1 - rho*(1-b))
}

// correctionFactor is the M/G/c scaling (cs^2 + 1)/2 expressed through the
// raw variance: (sigma^2 + 1/mu^2) / (2/mu^2). Equals 1 for exponential
// service times (sigma^2 == 1/mu^2).
func correctionFactor(mu, serviceVar float64) float64 {
	expVar := 1.0 / (mu * mu)
	return (serviceVar + expVar) / (2 * expVar)
}
