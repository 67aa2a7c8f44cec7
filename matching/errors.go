// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package matching

import "errors"

var (
	// ErrInvalidConfig is returned when a run configuration fails validation.
	ErrInvalidConfig = errors.New("invalid matching config")

	// ErrInvalidWeights is returned when signal weights are negative or do not sum to 1.
	ErrInvalidWeights = errors.New("signal weights must be non-negative and sum to 1")

	// ErrInvalidThreshold is returned when the composite threshold lies outside [0,1].
	ErrInvalidThreshold = errors.New("threshold must lie in [0,1]")

	// ErrMatcherRequired is returned when no taxonomy matcher is provided.
	ErrMatcherRequired = errors.New("taxonomy matcher required")

	// ErrInvalidInput is returned when a listing cannot take part in a run.
	ErrInvalidInput = errors.New("invalid input listing")
)
