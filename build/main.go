package main

import (
	"os"
	"os/exec"

	"github.com/goyek/goyek/v2"
)

const (
	goBinaryConstant     = "go"
	allPackagesConstant  = "./..."
	binaryOutputConstant = "bin/esrctl"
	mainPackageConstant  = "."
)

var vet = goyek.Define(goyek.Task{
	Name:  "vet",
	Usage: "Run go vet on all packages",
	Action: func(a *goyek.A) {
		runGo(a, "vet", allPackagesConstant)
	},
})

var test = goyek.Define(goyek.Task{
	Name:  "test",
	Usage: "Run the tests with the race detector",
	Action: func(a *goyek.A) {
		runGo(a, "test", "-race", "-count=1", allPackagesConstant)
	},
})

var build = goyek.Define(goyek.Task{
	Name:  "build",
	Usage: "Build the esrctl binary into bin/",
	Action: func(a *goyek.A) {
		runGo(a, "build", "-o", binaryOutputConstant, mainPackageConstant)
	},
})

var all = goyek.Define(goyek.Task{
	Name:  "all",
	Usage: "vet, test and build",
	Deps:  goyek.Deps{vet, test, build},
})

func runGo(a *goyek.A, arguments ...string) {
	a.Helper()
	command := exec.CommandContext(a.Context(), goBinaryConstant, arguments...)
	command.Stdout = os.Stdout
	command.Stderr = os.Stderr
	if runError := command.Run(); runError != nil {
		a.Error(runError)
	}
}

func main() {
	goyek.SetDefault(all)
	goyek.Main(os.Args[1:])
}
