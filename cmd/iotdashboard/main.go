package main

import (
	"github.com/DECODEproject/iotdashboard/pkg/tasks"
)

func main() {
	tasks.Execute()
}
