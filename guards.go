package weft

import "github.com/volvoxlabs/weft/pkg/api"

// Guard constructors. Guards are serializable data, so these are plain
// value builders; see api.Guard for evaluation semantics.

// Always matches unconditionally.
func Always() api.Guard { return api.Guard{Op: api.OpAlways} }

// Exists matches when key is present in the run context.
func Exists(key string) api.Guard { return api.Guard{Op: api.OpExists, Key: key} }

// Truthy matches when key holds a non-zero, non-empty value.
func Truthy(key string) api.Guard { return api.Guard{Op: api.OpTruthy, Key: key} }

// Eq matches when key equals value. Numbers compare numerically across
// int/float representations.
func Eq(key string, value any) api.Guard { return api.Guard{Op: api.OpEq, Key: key, Value: value} }

// Ne matches when key does not equal value.
func Ne(key string, value any) api.Guard { return api.Guard{Op: api.OpNe, Key: key, Value: value} }

// Gt matches when key holds a number greater than value.
func Gt(key string, value any) api.Guard { return api.Guard{Op: api.OpGt, Key: key, Value: value} }

// Gte matches when key holds a number greater than or equal to value.
func Gte(key string, value any) api.Guard { return api.Guard{Op: api.OpGte, Key: key, Value: value} }

// Lt matches when key holds a number less than value.
func Lt(key string, value any) api.Guard { return api.Guard{Op: api.OpLt, Key: key, Value: value} }

// Lte matches when key holds a number less than or equal to value.
func Lte(key string, value any) api.Guard { return api.Guard{Op: api.OpLte, Key: key, Value: value} }
