// Copyright 2026 The Together authors. All Rights Reserved.
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

package together

import (
	"errors"
	"fmt"
)

var (
	// ErrPositionOutOfBounds is returned when a visible position falls
	// outside the current document length. The document is unchanged.
	ErrPositionOutOfBounds = errors.New("together: position out of bounds")
	// ErrCapacityExceeded is returned when an author's content column
	// would grow past its addressable size.
	ErrCapacityExceeded = errors.New("together: content capacity exceeded")
	// ErrTooManyAuthors is returned when the author table is full.
	ErrTooManyAuthors = errors.New("together: too many authors")
	// ErrMalformed is returned when a binary operation cannot be decoded.
	ErrMalformed = errors.New("together: malformed operation encoding")
)

// DeferredError reports that an operation could not be applied yet
// because it references items that have not arrived. The operation has
// been retained and will be reattempted after each subsequent successful
// apply.
type DeferredError struct {
	// Missing lists the item identifiers the operation depends on.
	Missing []ItemID
}

func (e *DeferredError) Error() string {
	return fmt.Sprintf("together: operation deferred, missing %d dependencies", len(e.Missing))
}

// IsDeferred reports whether err indicates a deferred operation.
func IsDeferred(err error) bool {
	var d *DeferredError
	return errors.As(err, &d)
}
