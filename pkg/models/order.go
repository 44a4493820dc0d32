package models

import (
	"time"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Fill is an execution of one of our resting quotes, real or simulated.
type Fill struct {
	Side      OrderSide
	Price     float64
	Size      float64
	Timestamp time.Time
}
