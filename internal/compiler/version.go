package compiler

// Version is recorded with every logged compilation.
const Version = "0.1.0"
