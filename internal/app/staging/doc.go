// Package staging binds deferred writes to the unit of work processing the
// current message.
//
// Actions added to a unit's Queue run in order when the unit prepares to
// commit. A failing action undoes the ones that already ran, in reverse, and
// fails the commit so the unit rolls back. When the unit rolls back after
// the actions ran, they are undone in reverse as well.
//
//	q, err := staging.For(ctx)
//	if err != nil {
//	    return err
//	}
//	q.Add(&IncrementAction{Name: "order.placed"})
package staging
