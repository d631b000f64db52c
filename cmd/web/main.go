package main

import "pnptv_backend/internal/app"

func main() {
	app.Run()
}
