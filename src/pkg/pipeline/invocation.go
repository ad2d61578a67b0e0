package pipeline

import "strings"

const (
	CONTAINER_INPUT_DIR  = "/app/data/input_data"
	CONTAINER_OUTPUT_DIR = "/app/data/output_data"
)

// Mount binds a host directory into the container
type Mount struct {
	Source string
	Target string
}

// Bind renders the mount in "-v" form
func (m Mount) Bind() string {
	return m.Source + ":" + m.Target
}

// Invocation is a fully constructed container run.
// Expected shape once rendered:
//
//	docker run --rm \
//	    -v <input>:/app/data/input_data \
//	    -v <output>:/app/data/output_data \
//	    [--gpus all] \
//	    <image> [args...]
type Invocation struct {
	Image  string
	Mounts []Mount
	GPU    bool
	Args   []string // passed to the container entrypoint
}

// NewInvocation builds the standard invocation for one pipeline run
func NewInvocation(image, inputDir, outputDir string, gpu bool, args ...string) Invocation {
	return Invocation{
		Image: image,
		Mounts: []Mount{
			{Source: inputDir, Target: CONTAINER_INPUT_DIR},
			{Source: outputDir, Target: CONTAINER_OUTPUT_DIR},
		},
		GPU:  gpu,
		Args: args,
	}
}

// Argv renders the invocation as docker CLI arguments, without the program name
func (inv Invocation) Argv() []string {
	argv := []string{"run", "--rm"}
	for _, m := range inv.Mounts {
		argv = append(argv, "-v", m.Bind())
	}
	if inv.GPU {
		argv = append(argv, "--gpus", "all")
	}
	argv = append(argv, inv.Image)
	argv = append(argv, inv.Args...)
	return argv
}

// String renders the full command line, for dry runs and logs
func (inv Invocation) String() string {
	return DOCKER_BINARY + " " + strings.Join(inv.Argv(), " ")
}
