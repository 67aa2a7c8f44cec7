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

package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidListing indicates a Listing failed validation.
	ErrInvalidListing = errors.New("invalid listing")

	// ErrInvalidMatch indicates a Match failed validation.
	ErrInvalidMatch = errors.New("invalid match")

	// ErrEmptyID indicates a required identifier is empty.
	ErrEmptyID = errors.New("id cannot be empty")

	// ErrInvalidRole indicates an invalid Role value.
	ErrInvalidRole = errors.New("invalid role")

	// ErrScoreOutOfRange indicates a score outside [0,1] or not a number.
	ErrScoreOutOfRange = errors.New("score out of range")

	// ErrInvalidDistance indicates a negative or non-finite distance.
	ErrInvalidDistance = errors.New("invalid distance")

	// ErrInvalidPairKey indicates an encoded pair key could not be parsed.
	ErrInvalidPairKey = errors.New("invalid pair key")
)
