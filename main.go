package main

import "github.com/Seann-Moser/pca9685-pwm/cmd"

func main() {
	cmd.Execute()
}
