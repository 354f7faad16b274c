// Package policy decides how human steps are answered for a workflow run:
// a person is asked, a default answer is applied, or the step is refused.
// Allow and block lists additionally gate action steps by "service.method".
package policy
