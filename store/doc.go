// Package store provides subscribable value containers.
//
// A store holds one value and delivers it to subscribers: the current value
// when they subscribe, then every update. Readable stores are fed by a
// StartStopNotifier that runs while at least one subscriber is attached,
// which lets a store mirror an external source (an interpreter, a timer,
// another store) only while someone is listening.
package store
