// Command sitegrade grades websites for search engine and AI readiness.
package main

func main() {
	Execute()
}
