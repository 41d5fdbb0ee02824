// Package command implements the SetFanState direct method.
//
// Applying the new fan state and delivering the response are not
// transactional: a response that cannot be delivered is logged and the
// already applied state change stays in place.
package command
