// Package queue provides the fixed-capacity candidate buffer used by k-NN queries.
package queue
