// Package simulator advances the cave environment by one discrete step.
//
// With the fan on, readings take a random walk biased toward their
// setpoints and the fan may fail. With the fan off or failed, readings
// creep back toward ambient and then fluctuate around it.
package simulator
