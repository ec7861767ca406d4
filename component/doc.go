// Package component manages the lifecycle of the backing services a job
// uses, such as the database, redis and kafka clients.
//
// Components are registered in dependency order, started before the engine
// runs and stopped in reverse order afterwards.
package component
