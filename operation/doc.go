// Package operation defines the steps rows pass through and the chain that
// orders them.
//
// A Chain is an immutable, indexed list of operations. Group adds conditional
// branching, Deferred accumulates rows into batches, and Func, Filter and Tap
// adapt plain functions. Operations reach the running process through the
// Host carried by their context.
//
//	chain := operation.NewChain("orders",
//	    operation.NewFunc("trim", trim),
//	    &operation.Group{Label: "valid", If: isValid,
//	        Then: []operation.Operation{operation.NewTap("count", count)},
//	        Else: []operation.Operation{operation.NewFilter("drop", never)}},
//	    operation.NewDeferred("insert", operation.DeferredConfig{BatchSize: 500}, insert),
//	)
package operation
