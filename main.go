package main

import "raijin/internal/raijin"

func main() {
	raijin.Main()
}
