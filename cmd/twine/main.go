// Command twine serves static and processed documents for a set of virtual hosts.
package main

func main() {
	Execute()
}
