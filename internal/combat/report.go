package combat

// AttackReport captures one weapon's resolution, step by step.
type AttackReport struct {
	Weapon      string    `json:"weapon"`
	Attacks     int       `json:"attacks"`
	Hits        StepRolls `json:"hits"`
	Wounds      StepRolls `json:"wounds"`
	Saves       StepRolls `json:"saves"` // Success counts failed saves
	Damage      int       `json:"damage"`
	Before      LiveState `json:"before"`
	After       LiveState `json:"after"`
	ModelsSlain int       `json:"models_slain"`
}

// StepRolls describes one sub-step: the target number, the dice and how
// many of them propagate to the next step.
type StepRolls struct {
	Target  int   `json:"target"`
	Rolls   []int `json:"rolls,omitempty"`
	Success int   `json:"success"`
}
