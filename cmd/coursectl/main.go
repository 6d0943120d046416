// Command coursectl parses unpacked course directories into the canonical
// course document and imports them into the LMS.
package main

func main() {
	Execute()
}
