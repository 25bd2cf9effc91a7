// Command kmemctl boots the kernel memory-management core on a simulated
// machine and inspects the result.
package main

func main() {
	execute()
}
