package engine

// RoundOrder is the fixed progression of a party. Results is terminal.
var RoundOrder = []Step{
	StepPrompt,
	StepCopy,
	StepVote,
	StepResults,
}
