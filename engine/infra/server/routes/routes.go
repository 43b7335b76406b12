package routes

const apiVersion = "v1"

// Base returns the versioned API base path.
func Base() string {
	return "/api/" + apiVersion
}

// Gateway returns the base path of the service-to-service surface.
func Gateway() string {
	return Base() + "/gateway"
}

func Health() string { return "/health" }
