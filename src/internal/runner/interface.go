package runner

type RunnerInterface interface {
	// Initialize the runner with necessary context and data
	Initialize() error

	// Main routine to process the runner
	Process() error

	// Handling the export of what Process collected
	Output() error
}
