package orders

import "github.com/oklog/ulid/v2"

const OrderNumberPrefix = "PJ"

// NewOrderNumber returns PJ-<time>-<random>. The time part is the ULID
// millisecond timestamp and the suffix is the low 40 bits of its monotonic
// entropy. The unique index on order_number is the final arbiter.
func NewOrderNumber() string {
	id := ulid.Make().String()
	return OrderNumberPrefix + "-" + id[:10] + "-" + id[18:]
}
