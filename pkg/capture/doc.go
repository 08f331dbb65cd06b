// Package capture turns entity lifecycle notifications into audit events.
//
// A data-access layer drives the Engine with one UnitOfWork per save or
// delete operation:
//
//	uow := capture.NewUnitOfWork()
//	_ = engine.BeforeSave(ctx, uow, "articles", article)
//	// children save first, each with BeforeSave/AfterSave on the same uow
//	_ = engine.AfterSave(ctx, uow, "articles", article)
//	err := engine.AfterCommit(ctx, uow) // or engine.Rollback(uow)
//
// AfterSave and AfterDelete compute the field level diff and queue the event.
// AfterCommit runs the enrichers and hands the ordered batch to the persister.
package capture
