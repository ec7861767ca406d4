// Package bootstrap runs a rowflow job with a uniform lifecycle.
//
// An App loads nothing by itself: it takes a typed config that embeds
// config.ServiceConfig, starts the registered components, runs the
// configure callbacks and hooks, executes a task, prints a summary of the
// process runs and finally stops everything in reverse order.
//
//	app, err := bootstrap.NewApp(cfg)
//	if err != nil {
//	    return err
//	}
//	_ = app.RegisterComponent(database.NewComponent(cfg.Database, app.Logger))
//	return app.RunTask(ctx, func(ctx context.Context) error {
//	    res, err := eng.Execute(ctx)
//	    app.Summary.TrackRun(eng.Name(), res)
//	    return err
//	})
//
// SIGINT and SIGTERM cancel the task's context; a cancelled engine run
// stops early and still reports its counters.
package bootstrap
