// Package testutil provides fixtures for testing rowflow processes and
// operations: row builders, a recording Host, recording and failing
// operations, and component setup helpers bound to testing.T.
//
//	func TestInsert(t *testing.T) {
//	    testutil.T(t).Setup(dbComponent)
//	    rec := testutil.NewRecorder("seen")
//	    ...
//	}
package testutil
