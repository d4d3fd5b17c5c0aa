// Package radau implements the 15th order Gauss-Radau predictor/corrector
// that advances the Encke deviation of a dhem.State across one step.
//
// The position deviation is integrated as a second order field driven by
// its acceleration, the momentum deviation as a first order field driven by
// its rate. Both share the Radau spacing of dhem.StageFractions.
package radau
