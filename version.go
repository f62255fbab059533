package imgex

const (
	// Version is the library version.
	Version = "0.1.2"

	// Description is a short description of the library.
	Description = "Docker image export tool without Docker daemon"
)
