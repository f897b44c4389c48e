package cascade

// Version exposes the library version.
const Version = "0.1.0"
