// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import "context"

// Collector produces the current quality value for a run.
//
// How the value is measured is the caller's concern: a collector may
// run an evaluation suite, query an external scorer, or simply pass
// through a value supplied with the request.
type Collector interface {
	// Collect returns the current quality value for the request's subject.
	Collect(ctx context.Context, req Request) (float64, error)
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(ctx context.Context, req Request) (float64, error)

// Collect calls the wrapped function.
func (f CollectorFunc) Collect(ctx context.Context, req Request) (float64, error) {
	return f(ctx, req)
}

// ValueCollector passes through the value carried on the request.
// This is the collector used by the HTTP surface, where callers submit
// already-measured values.
func ValueCollector() Collector {
	return CollectorFunc(func(_ context.Context, req Request) (float64, error) {
		return req.Value, nil
	})
}
