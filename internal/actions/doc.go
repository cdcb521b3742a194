// Package actions runs typed operations named by remote push payloads.
//
// An Action is registered in a Registry under one or more names. When a push
// arrives, Registry.RunPayload looks at the payload's top-level keys and runs
// every action registered under one of them, passing the value under that key
// as the action's argument together with the Situation the push arrived in.
//
// Each action decides whether it accepts its arguments before it performs.
// ModifyAttributesAction ("modify_attributes_action", short name "^a")
// accepts {"channel"|"named_user": {"set": {...}, "remove": [...]}} and
// rejects background pushes.
package actions
